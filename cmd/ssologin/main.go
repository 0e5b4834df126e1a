package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-sso-client/authstate"
	"github.com/jrsteele09/go-sso-client/broadcast"
	"github.com/jrsteele09/go-sso-client/client"
	"github.com/jrsteele09/go-sso-client/internal/config"
	ssoerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/providers"
	"github.com/jrsteele09/go-sso-client/sessions"
	"github.com/jrsteele09/go-sso-client/token"
)

const providerID = "sso"

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running login: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Login client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	ssoClient, err := buildClient(c)
	if err != nil {
		return fmt.Errorf("buildClient: %w", err)
	}
	defer ssoClient.Close()

	authURL, err := ssoClient.AuthorizationURL(context.Background(), providerID, client.AuthorizeOptions{})
	if err != nil {
		return fmt.Errorf("client.AuthorizationURL: %w", err)
	}
	fmt.Printf("Open this URL in your browser to log in:\n\n  %s\n\n", authURL)

	server, done, err := callbackServer(ssoClient, c.GetRedirectURI())
	if err != nil {
		return err
	}
	go listenAndServe(server)

	waitForLoginOrStopSignal(done)
	returnError = shutdown(server)
	return returnError
}

func buildClient(c config.Config) (*client.Client, error) {
	if c.GetServerURL() == "" {
		return nil, fmt.Errorf("SSO_SERVER_URL: %w", ssoerrors.ErrMissingServerURL)
	}

	registry, err := providers.NewRegistry(providers.DefaultConfig(
		providerID,
		c.GetServerURL(),
		c.GetClientID(),
		c.GetClientSecret(),
		c.GetRedirectURI(),
		c.GetScopes(),
	))
	if err != nil {
		return nil, fmt.Errorf("providers.NewRegistry: %w", err)
	}

	options := []client.Option{
		client.WithSessionTimeout(c.GetSessionTimeout()),
		client.WithAutoRefresh(c.GetAutoRefresh()),
	}

	stores := client.Stores{
		Flows:    authstate.NewInMemoryRepo(),
		Tokens:   token.NewInMemoryRepo(),
		Sessions: sessions.NewInMemoryRepo(),
	}
	if c.GetStorageBackend() == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		stores = client.Stores{
			Flows:    authstate.NewRedisRepo(rdb, 15*time.Minute),
			Tokens:   token.NewRedisRepo(rdb, ""),
			Sessions: sessions.NewRedisRepo(rdb, ""),
		}
		options = append(options,
			client.WithDenylist(token.NewRedisDenylist(rdb)),
			client.WithBroadcast(broadcast.NewRedisBus(rdb, ""), c.GetServerURL()),
		)
	}

	return client.New(registry, stores, options...)
}

// callbackServer serves the loopback redirect URI and completes the login
// when the browser comes back.
func callbackServer(ssoClient *client.Client, redirectURI string) (*http.Server, chan struct{}, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return nil, nil, fmt.Errorf("url.Parse redirect URI: %w", err)
	}

	done := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if !client.IsCallback(r.URL.Query()) {
			http.Error(w, "Not an authorization callback", http.StatusBadRequest)
			return
		}

		result, err := ssoClient.HandleCallback(r.Context(), client.ParseCallback(r.URL.Query()))
		if err != nil {
			http.Error(w, fmt.Sprintf("Login failed: %v", err), http.StatusBadRequest)
			return
		}

		fmt.Printf("Logged in as %s <%s> (session %s)\n", result.User.Name, result.User.Email, result.Session.ID)
		fmt.Fprintf(w, "Logged in as %s. You can close this window.\n", result.User.Name)
		close(done)
	})

	return &http.Server{Addr: redirect.Host, Handler: mux}, done, nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Waiting for callback on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForLoginOrStopSignal(done chan struct{}) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-done:
	case <-stop:
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
