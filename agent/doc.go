/*
Package agent holds the packages of the wallet core. The agent package is
empty itself. All the functionality is inside sub-packages:

	bus        notification station for the state changes
	connector  browser extension connector contract and address rules
	history    transfer history retrieval with retries and fallback data
	identity   registry of the managed identities and the active one
	keys       key derivation from entropy, recovery phrases and raw keys
	ledger     ledger queries and transfer submission
	session    coordinator of the connected identity
	storage    persistence gateway of the wallet state
	utils      settings and small helpers
	wallet     facade that wires the above together
	werr       error kinds shared by the packages
*/
package agent
