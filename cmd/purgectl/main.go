// purgectl 附件历史版本清理的命令行工具。
//
// 用法:
//
//	# 立即执行一次清理（Ctrl-C 取消，已处理的批次会保留）
//	purgectl run
//
//	# 查看与修改保留策略（YAML）
//	purgectl policy get _system
//	purgectl policy set DOCS --file docs-policy.yaml
//	purgectl policy delete DOCS
//
//	# 初始化数据库表结构
//	purgectl migrate
//
//	# 生成演示数据
//	purgectl seed --spaces 3 --attachments 20 --versions 6
package main

func main() {
	Execute()
}
