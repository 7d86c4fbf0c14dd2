//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"testing"
	"time"

	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/accesslog/amqp"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/stretchr/testify/assert"
)

func TestDefaultAccessLog(t *testing.T) {
	var tests = []struct {
		sink string
		want accesslog.Factory
	}{
		{"", &accesslog.IoWriterFactory{}},
		{"stdout", &accesslog.IoWriterFactory{}},
		{"null", &accesslog.NullFactory{}},
		{"amqp", &amqp.Factory{}},
		{"kafka", &accesslog.IoWriterFactory{}},
	}

	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			config.ResetConfig()
			t.Cleanup(config.ResetConfig)
			config.VConfig.Set(config.AuditSink, tt.sink)

			assert.IsType(t, tt.want, defaultAccessLog())
		})
	}
}

func TestNullStreamDropsEvents(t *testing.T) {
	s, err := accesslog.NewNullFactory().NewStream()
	assert.NoError(t, err)
	assert.NoError(t, s.Send(accesslog.NewEvent(accesslog.KindDecision, "ds-1", "health.view", "ind-1", time.Now())))
	s.Close()
}
