//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"user_id":"ds-1"}`), 0o600))

	data, err := ReadInput(path, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"ds-1"}`, string(data))

	for _, p := range []string{"-", ""} {
		data, err = ReadInput(p, strings.NewReader("from stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from stdin", string(data))
	}

	_, err = ReadInput(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestEngineFlags(t *testing.T) {
	names := map[string]bool{}
	for _, f := range EngineFlags() {
		names[f.Names()[0]] = true
	}
	assert.Equal(t, map[string]bool{"matrix": true, "fields": true, "directory": true}, names)
}
