package workers

import "errors"

// ErrCommandTimeout операция превысила отведенный срок;
// сессия принудительно разрывается и убирается из пула
var ErrCommandTimeout = errors.New("command execution timed out")

// ErrUnsupportedOperation тип операции не соответствует протоколу воркера
var ErrUnsupportedOperation = errors.New("unsupported operation for worker protocol")
