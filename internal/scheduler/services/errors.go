package services

import "errors"

// ErrNoEligibleWorker для задачи нет живого воркера нужного протокола
var ErrNoEligibleWorker = errors.New("no eligible worker for task")

// ErrAffinityUnsatisfiable в группе из конфигурации задачи нет живых
// воркеров; задача возвращается в очередь и получает пометку
var ErrAffinityUnsatisfiable = errors.New("worker group affinity cannot be satisfied")

// ErrConcurrentDispatch задачу уже захватил другой цикл диспетчера
var ErrConcurrentDispatch = errors.New("task already dispatched")
