package services

import (
	"context"
)

// ProgressEvent 注册进度事件，每个事件对应一个已完成的步骤
type ProgressEvent struct {
	Message string `json:"message"`
	Step    int    `json:"step"`
}

// EventSink 接收进度事件
type EventSink func(event ProgressEvent)

// SignupStream 后台执行的注册流程，订阅方通过 Events 读取进度
type SignupStream struct {
	subscriber context.Context
	events     chan ProgressEvent
	done       chan struct{}
	err        error
}

func newSignupStream(subscriber context.Context) *SignupStream {
	return &SignupStream{
		subscriber: subscriber,
		events:     make(chan ProgressEvent, StepFailed),
		done:       make(chan struct{}),
	}
}

// RunSignupStream 在独立goroutine中执行 run。run 拿到的上下文不随订阅方取消，
// 订阅方断开后流程和补偿仍会执行完
func RunSignupStream(ctx context.Context, run func(ctx context.Context, emit EventSink) error) *SignupStream {
	stream := newSignupStream(ctx)
	go func() {
		stream.finish(run(context.WithoutCancel(ctx), stream.send))
	}()
	return stream
}

// Events 进度事件通道，流程结束后关闭
func (s *SignupStream) Events() <-chan ProgressEvent {
	return s.events
}

// Err 流程结束后的错误，需在 Events 关闭后读取
func (s *SignupStream) Err() error {
	<-s.done
	return s.err
}

// Wait 阻塞直到流程（包括补偿）结束
func (s *SignupStream) Wait() error {
	return s.Err()
}

// send 订阅方已断开时丢弃事件，不阻塞流程
func (s *SignupStream) send(event ProgressEvent) {
	select {
	case s.events <- event:
	case <-s.subscriber.Done():
	}
}

func (s *SignupStream) finish(err error) {
	s.err = err
	close(s.done)
	close(s.events)
}
