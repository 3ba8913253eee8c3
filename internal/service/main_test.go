package service

import (
	"os"
	"testing"

	"wager-server/common/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}
