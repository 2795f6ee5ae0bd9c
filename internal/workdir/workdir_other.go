//go:build !unix

package workdir

import "os"

func saveCurrent() (func() error, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return func() error {
		return os.Chdir(wd)
	}, nil
}
