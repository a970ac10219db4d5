package config

import "log"

// Init 加载配置文件并叠加 FETCH_* 环境变量，文件不存在时写入默认配置
func Init(configPath string) (*ConfigManager, error) {
	configManager, err := NewConfigManager(configPath)
	if err != nil {
		log.Printf("[Config] 加载 %s 失败: %v", configPath, err)
		return nil, err
	}

	cfg := configManager.GetConfig()
	log.Printf("[Config] 使用 %s: addr=%s backend=%s sweep=%q",
		configPath, cfg.Server.Addr, cfg.Cache.Backend, cfg.Cache.SweepSchedule)
	return configManager, nil
}
