//
//  Copyright © Manetu Inc. All rights reserved.
//

package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// podinfoFile lazily reads one file of the Downward API volume.
type podinfoFile struct {
	name   string
	once   sync.Once
	values map[string]string
}

var (
	k8sLabels      = &podinfoFile{name: "labels"}
	k8sAnnotations = &podinfoFile{name: "annotations"}
)

// resetK8sCache clears cached Downward API data so it will be re-read.
// Intended for testing only.
func resetK8sCache() {
	k8sLabels = &podinfoFile{name: "labels"}
	k8sAnnotations = &podinfoFile{name: "annotations"}
}

func (f *podinfoFile) get() map[string]string {
	f.once.Do(func() {
		p := filepath.Join(VConfig.GetString(AuditK8sPodinfo), f.name)
		values, err := parseDownwardAPIFile(p)
		if err != nil {
			logger.SysWarnf("failed to read k8s %s from %s: %v", f.name, p, err)
			return
		}
		f.values = values
	})
	return f.values
}

// parseDownwardAPIFile reads one key="value" pair per line.  A missing file
// yields nil, which is the normal case outside Kubernetes.
func parseDownwardAPIFile(path string) (map[string]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is constructed from trusted config + fixed filenames
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		result[key] = strings.Trim(value, "\"")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getK8sLabels() map[string]string {
	return k8sLabels.get()
}

func getK8sAnnotations() map[string]string {
	return k8sAnnotations.get()
}
