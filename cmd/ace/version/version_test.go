//
//  Copyright © Manetu Inc. All rights reserved.
//

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "v1.4.0"
	assert.Equal(t, "v1.4.0", GetVersion())

	Version = "dev"
	assert.NotEmpty(t, GetVersion())
}
