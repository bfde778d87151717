package database

import "embed"

// FunctionSQL 嵌入存储过程 SQL 文件
//
//go:embed sql/*.sql
var FunctionSQL embed.FS
