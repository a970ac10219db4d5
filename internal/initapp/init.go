package initapp

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Init 加载 .env 并准备数据目录，需在读取配置之前调用
func Init(configPath string) error {
	log.Printf("[Init] 开始初始化应用程序...")

	// .env 不存在时只使用进程环境变量
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Init] 加载 .env 失败: %v", err)
			return err
		}
		log.Printf("[Init] 未找到 .env，使用系统环境变量")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		log.Printf("[Init] 创建数据目录失败: %v", err)
		return err
	}

	log.Printf("[Init] 应用程序初始化完成")
	return nil
}
