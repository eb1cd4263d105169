package exception

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/monitoring"
)

func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", fmt.Sprintf("Panic in %s: %v\n%s", name, r, debug.Stack()))
				os.Exit(1)
			}
		}()
		fn()
	}()
}

// Recover is deferred by handlers that run on a caller's goroutine, so a
// bad peer message cannot take the node down.
func Recover(name string) {
	if r := recover(); r != nil {
		monitoring.IncreasePanicCount()
		logx.Error("PANIC", fmt.Sprintf("Panic in %s: %v\n%s", name, r, debug.Stack()))
	}
}
