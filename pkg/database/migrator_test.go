package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testWidget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func (testWidget) TableName() string { return "widgets" }

func TestMigrator_SQLiteSkipsFunctions(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	m := NewMigrator(db, zap.NewNop(), &testWidget{})
	require.NoError(t, m.Migrate(context.Background()))

	assert.True(t, db.Migrator().HasTable("widgets"))
	assert.False(t, IsPostgres(db))
}

func TestFunctionSQL_Embedded(t *testing.T) {
	m := NewMigrator(nil, zap.NewNop())
	names, err := m.FunctionFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := fs.ReadFile(FunctionSQL, "sql/"+names[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "FUNCTION assign_edition_numbers"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, ParseLogLevel("silent"))
	assert.Equal(t, logger.Info, ParseLogLevel("INFO"))
	assert.Equal(t, logger.Warn, ParseLogLevel("whatever"))
}
