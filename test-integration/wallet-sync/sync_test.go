package integration

import (
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-wallet-sync/internal/config"
	"github.com/stacklok/toolhive-wallet-sync/test-integration/wallet-sync/helpers"
)

func trackedWallets() []config.WalletConfig {
	policy := func(interval string) *config.SyncPolicyConfig {
		return &config.SyncPolicyConfig{Interval: interval}
	}
	return []config.WalletConfig{
		{Name: "savings", Family: "btc", Network: "mainnet", Token: "BTC", Address: "bc1qsavings", SyncPolicy: policy("1h")},
		{Name: "main", Family: "eth", Network: "mainnet", Token: "ETH", Address: "0xmain", SyncPolicy: policy("1h")},
		{Name: "ckbtc", Family: "ckminter", Network: "mainnet", Minter: "ckbtc-minter", SyncPolicy: policy("1h")},
	}
}

var _ = Describe("Wallet Sync", Label("sync"), func() {
	var (
		tempDir      string
		ledger       *helpers.MockLedger
		serverHelper *helpers.ServerTestHelper
	)

	// amountOf polls the balance of token
	amountOf := func(token string) func() string {
		return func() string {
			code, body, err := serverHelper.Get("/v1/balances/" + token)
			if err != nil || code != http.StatusOK {
				return ""
			}
			amount, _ := body["amount"].(string)
			return amount
		}
	}

	statusOf := func(path string) func() int {
		return func() int {
			code, _, err := serverHelper.Get(path)
			if err != nil {
				return 0
			}
			return code
		}
	}

	BeforeEach(func() {
		tempDir = createTempDir("wallet-sync-test-")
		ledger = helpers.NewMockLedger(map[string]string{"BTC": "150000", "ETH": "42"})
		helpers.WriteIdentity(tempDir, "alice")

		configFile := helpers.WriteConfigYAML(tempDir, ledger.URL(), trackedWallets())
		serverHelper = helpers.NewServerTestHelper(ctx, configFile, 18089)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		ledger.Close()
		cleanupTempDir(tempDir)
	})

	It("syncs every configured wallet on startup", func() {
		Eventually(amountOf("BTC"), 5*time.Second, 50*time.Millisecond).Should(Equal("150000"))
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))

		By("serving certified UTXO balances")
		_, body, err := serverHelper.Get("/v1/balances/BTC")
		Expect(err).NotTo(HaveOccurred())
		Expect(body["certified"]).To(BeTrue())

		By("serving the pending set with its excluded outpoints")
		code, body, err := serverHelper.Get("/v1/pending/bc1qsavings")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["items"]).To(HaveLen(1))
		Expect(body["excludedOutpoints"]).To(HaveLen(1))

		By("serving the minter status")
		Eventually(statusOf("/v1/minters/ckbtc-minter"), 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))

		By("summing the balances")
		code, body, err = serverHelper.Get("/v1/balances")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["amount"]).To(Equal("150042"))
	})

	It("lists the wallets with their scheduler status", func() {
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))

		code, body, err := serverHelper.Get("/v1/families")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["wallets"]).To(HaveLen(3))

		Expect(helpers.IdentityPath(tempDir)).To(BeAnExistingFile())
		entries, err := os.ReadDir(tempDir + "/status")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).NotTo(BeEmpty())
	})

	It("picks up new data on trigger", func() {
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))

		ledger.SetBalance("ETH", "43")
		code, body, err := serverHelper.Post("/v1/families/eth/wallets/main/trigger")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted))
		Expect(body["status"]).To(Equal("triggered"))

		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("43"))
	})

	It("refuses to trigger a stopped wallet", func() {
		code, _, err := serverHelper.Post("/v1/families/eth/wallets/main/stop")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted))

		code, _, err = serverHelper.Post("/v1/families/eth/wallets/main/trigger")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusConflict))

		By("restarting it")
		code, _, err = serverHelper.Post("/v1/families/eth/wallets/main/start")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted))
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))
	})

	It("clears everything on logout", func() {
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))

		code, _, err := serverHelper.Post("/v1/session/logout")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusNoContent))

		Expect(statusOf("/v1/balances/ETH")()).To(Equal(http.StatusServiceUnavailable))
		Expect(helpers.IdentityPath(tempDir)).NotTo(BeAnExistingFile())

		code, _, err = serverHelper.Post("/v1/families/eth/wallets/main/trigger")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusConflict))
	})

	It("invalidates a wallet whose credentials are rejected", func() {
		Eventually(amountOf("ETH"), 5*time.Second, 50*time.Millisecond).Should(Equal("42"))

		ledger.RejectCredentials()
		code, _, err := serverHelper.Post("/v1/families/eth/wallets/main/trigger")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(http.StatusAccepted))

		Eventually(statusOf("/v1/balances/ETH"), 5*time.Second, 50*time.Millisecond).
			Should(Equal(http.StatusServiceUnavailable))
		Expect(ledger.Requests()).To(BeNumerically(">", 0))
	})
})
