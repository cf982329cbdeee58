package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Florentin-artemix/Galileo-sub000/pkg/config"
)

func TestDSNQuotesValues(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:             "db.internal",
		Port:             5432,
		User:             "galileo",
		Password:         `p'a ss\word`,
		Name:             "galileo",
		SSLMode:          "require",
		StatementTimeout: 3 * time.Second,
	})

	assert.Contains(t, dsn, "host='db.internal'")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, `password='p\'a ss\\word'`)
	assert.Contains(t, dsn, "application_name='galileo-api'")
	assert.Contains(t, dsn, "statement_timeout=3000")
}

func TestDSNOmitsStatementTimeoutWhenUnset(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "localhost", Port: 5432})
	assert.NotContains(t, dsn, "statement_timeout")
}
