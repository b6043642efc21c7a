/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package relay

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

func (server *Server) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(withRequestID(), withRequestLogger(server.logger), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	if len(server.config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = server.config.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsConfig))

	engine.POST("/send-message", server.handleSendMessage)
	engine.GET("/health", server.handleHealth)

	return engine
}

func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := shortuuid.New()
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func withRequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id":  c.GetString(requestIDKey),
			"remote_addr": c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration":    time.Since(started),
		})
		if c.Writer.Status() >= 500 {
			entry.Warnln("http request failed")
		} else {
			entry.Debugln("http request")
		}
	}
}
