// Package goroutine запускает фоновые задачи сервиса с перехватом паник.
package goroutine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/logger"
)

// PanicHook вызывается после перехвата паники. По умолчанию пишет в logger.Log.
type PanicHook func(task string, recovered any, stack []byte)

func logPanic(task string, recovered any, stack []byte) {
	logger.Log.WithFields(logrus.Fields{
		"task":  task,
		"panic": recovered,
		"stack": string(stack),
	}).Error("паника в фоновой задаче")
}

// Group запускает именованные задачи и позволяет дождаться их завершения.
// Нулевое значение готово к работе.
type Group struct {
	wg      sync.WaitGroup
	OnPanic PanicHook
}

func (g *Group) hook() PanicHook {
	if g.OnPanic != nil {
		return g.OnPanic
	}
	return logPanic
}

// Go запускает fn в отдельной горутине. Паника не роняет процесс.
func (g *Group) Go(task string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.hook()(task, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// GoWithContext - то же, что Go, для задач, живущих до отмены ctx.
func (g *Group) GoWithContext(ctx context.Context, task string, fn func(context.Context)) {
	g.Go(task, func() { fn(ctx) })
}

// Wait ждёт завершения всех запущенных задач.
func (g *Group) Wait() {
	g.wg.Wait()
}

var defaultGroup Group

// SafeGo запускает задачу в глобальной группе.
func SafeGo(task string, fn func()) {
	defaultGroup.Go(task, fn)
}

// SafeGoWithContext запускает задачу с контекстом в глобальной группе.
func SafeGoWithContext(ctx context.Context, task string, fn func(context.Context)) {
	defaultGroup.GoWithContext(ctx, task, fn)
}
