package config

import "strconv"

const (
	// BackendMemory keeps tokens, sessions and auth flows in process memory.
	BackendMemory = "memory"
	// BackendRedis persists them in Redis, shared across processes.
	BackendRedis = "redis"
)

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageBackend() string {
	backend := GetEnv("SSO_STORAGE_BACKEND", BackendMemory)
	if backend != BackendRedis {
		return BackendMemory
	}
	return backend
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil {
		return 0
	}
	return db
}
