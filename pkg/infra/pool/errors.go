// Package pool provides bounded worker pools on top of ants.
package pool

import "errors"

var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("池已关闭")

	// ErrPoolOverload 池已满（非阻塞模式）
	ErrPoolOverload = errors.New("池已满")
)
