package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		logrus.Errorf("[GetUUID] generate uuid fail, err = %v", err)
		return uuid.NewString()
	}
	return u1.String()
}

// NewSessionID 调试会话id，用于日志
func NewSessionID() string {
	return "js-" + GetUUID()[:8]
}
