package utils

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupCloseHandler 收到 SIGINT/SIGTERM 时执行一次 callback 后退出。
// callback 执行期间再次收到信号会立即以非零状态退出。
func SetupCloseHandler(callback func()) {
	c := make(chan os.Signal, 2)
	done := make(chan struct{})
	var once sync.Once

	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Printf("[Server] 收到信号 %v，开始关闭...", sig)
		once.Do(func() {
			go func() {
				callback()
				close(done)
			}()
		})

		select {
		case <-done:
			log.Printf("[Server] 已关闭")
			os.Exit(0)
		case sig = <-c:
			log.Printf("[Server] 再次收到信号 %v，强制退出", sig)
			os.Exit(1)
		}
	}()
}
