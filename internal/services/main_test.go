package services

import (
	"os"
	"testing"

	"github.com/dmejia/cobranza-api/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Setup("test")
	os.Exit(m.Run())
}
