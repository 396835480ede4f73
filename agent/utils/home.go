package utils

import (
	"os"
	"os/user"
	"path/filepath"
)

// HomeDir returns the user's home directory, HOME first.
func HomeDir() string {
	if v := os.Getenv("HOME"); v != "" {
		return v
	}
	currentUser, err := user.Current()
	if err != nil {
		panic(err)
	}
	return currentUser.HomeDir
}

// DefaultStatePath is where the wallet state is kept if nothing else is set.
func DefaultStatePath() string {
	return filepath.Join(HomeDir(), ".findy", "wallet", "state.bolt")
}
