package utils

import (
	"log"
	"time"
)

// LogMessage logs a message to stdout for container logs
func LogMessage(level, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	log.Printf("[%s] [%s] %s", timestamp, level, message)
}
