package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/lainio/err2/assert"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var dbPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "findy-wallet-cmd")
	if err != nil {
		panic(err)
	}
	dbPath = filepath.Join(dir, "state.bolt")
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append(args, "--db", dbPath, "--logging=-logtostderr=false"))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestGetEnvName(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	assert.Equal(getEnvName("", "db_key"), "FWALLET_DB_KEY")
	assert.Equal(getEnvName("history", "ATTEMPTS"), "FWALLET_HISTORY_ATTEMPTS")
	assert.Equal(flagInfo("wallet state file", "", "DB"), "wallet state file, FWALLET_DB")
}

func TestIdentityCommands(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	out, err := execute("identity", "create", "--name", "first")
	assert.NoError(err)
	assert.That(strings.Contains(out, "recovery phrase:"))
	first := strings.TrimSpace(strings.TrimPrefix(strings.Split(out, "\n")[0], "address:"))
	assert.NotEmpty(first)

	out, err = execute("identity", "import-key", testKey, "--name", "hardhat")
	assert.NoError(err)
	assert.That(strings.Contains(out, testAddress))

	out, err = execute("identity", "list")
	assert.NoError(err)
	assert.That(strings.Contains(out, "* "+first))
	assert.That(strings.Contains(out, "  "+testAddress))

	out, err = execute("identity", "use", testAddress)
	assert.NoError(err)
	assert.Equal(out, "active: "+testAddress+"\n")

	_, err = execute("identity", "use", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	assert.Error(err)

	out, err = execute("identity", "rm", testAddress)
	assert.NoError(err)
	assert.Equal(out, "active: "+first+"\n")

	out, err = execute("session", "show")
	assert.NoError(err)
	assert.That(strings.Contains(out, "connected: none"))
	assert.That(strings.Contains(out, first))

	out, err = execute("identity", "rm", first)
	assert.NoError(err)
	assert.Equal(out, "wallet is empty\n")
}

func TestHistoryCommand_fallback(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	out, err := execute("history", testAddress)
	assert.NoError(err)
	assert.That(strings.Contains(out, "fallback"))
	assert.That(strings.Contains(out, "USDC"))
}

func TestVersionCommand(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	out, err := execute("version")
	assert.NoError(err)
	assert.Equal(out, utils.Version+"\n")
}

func TestApproveCommand_dryRun(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	defer func() {
		_ = rootCmd.PersistentFlags().Set("dry-run", "false")
	}()

	const (
		token   = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
		spender = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	)

	_, err := execute("identity", "import-key", testKey)
	assert.NoError(err)

	out, err := execute("approve", token, spender, "100", "--dry-run")
	assert.NoError(err)
	assert.Equal(out, "would approve 100 of "+token+" for "+spender+" from "+testAddress+"\n")

	_, err = execute("identity", "rm", testAddress, "--dry-run=false")
	assert.NoError(err)
}
