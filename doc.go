/*
Package main is an application package for the Findy wallet CLI. The wallet
keeps a set of managed identities with their key material, tracks which one of
them is active, remembers the last identity a browser extension connected, and
fetches the transfer history of an address from an Alchemy style indexer. If
the indexer cannot help, a fixed demo dataset is shown and marked as fallback.

The whole state lives in one bbolt file, optionally sealed with an AES key.

# About the build-in CLI

The CLI is built with cobra and viper. Every flag can be given in a config
file or as an environment variable with the FWALLET_ prefix, for example
FWALLET_DB or FWALLET_RPC. Use the help to see all of the commands:

	findy-wallet --help

Examples

	findy-wallet identity create --name savings
	findy-wallet identity list
	findy-wallet history --rpc https://eth-sepolia.g.alchemy.com/v2/<key>
	findy-wallet balance 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
*/
package main
