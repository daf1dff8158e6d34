package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"attachpurge/backend/internal/app"
	"attachpurge/backend/internal/config"
	"attachpurge/backend/internal/service"
)

// openStorage 打开配置的存储，使用内存存储时提示数据不会保留
func openStorage() (*config.Config, *app.Storage, *zap.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Database.UsesMemoryStore() {
		fmt.Fprintln(os.Stderr, "warning: database.type is not set, using a memory store that is discarded on exit")
	}

	st, err := app.OpenStorage(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, log, nil
}

// openPolicies 打开策略服务，返回的函数负责关闭存储
func openPolicies() (*service.PolicyService, func(), error) {
	_, st, log, err := openStorage()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			log.Warn("close storage failed", zap.Error(err))
		}
		_ = log.Sync()
	}
	return service.NewPolicyService(st.Store, log), closeFn, nil
}
