package uuidutil

import "github.com/google/uuid"

func New() string {
	return uuid.New().String()
}

func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Deterministic стабильный идентификатор, выведенный из имени;
// одно имя всегда дает один и тот же uuid
func Deterministic(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Short первые 8 символов идентификатора, для логов
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
