package utils

// Version is the version of the wallet core and its CLI.
const Version = "0.1.0"
