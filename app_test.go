package main

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("app", func() {
	var (
		dir      string
		previous string
	)

	writeConfig := func(ledgerPath string) string {
		path := filepath.Join(dir, "campusrag.yaml")
		content := "vector_store:\n" +
			"  dimension: 3\n" +
			"  chromem:\n" +
			"    path: " + filepath.Join(dir, "vector_db") + "\n" +
			"ingest:\n" +
			"  ledger_path: " + ledgerPath + "\n"
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "campusrag_app_*")
		Expect(err).ToNot(HaveOccurred())
		previous = configPath
	})

	AfterEach(func() {
		configPath = previous
		os.RemoveAll(dir)
	})

	It("should open the store and the ledger", func() {
		configPath = writeConfig(filepath.Join(dir, "sources.json"))

		a, err := newApp(context.Background(), false)
		Expect(err).ToNot(HaveOccurred())
		defer a.Close()
		Expect(a.store.CollectionExists(context.Background())).To(BeTrue())
		Expect(a.ledger).ToNot(BeNil())
	})

	It("should release the store when the ledger cannot be read", func() {
		ledgerPath := filepath.Join(dir, "sources.json")
		Expect(os.WriteFile(ledgerPath, []byte("not json"), 0644)).To(Succeed())
		configPath = writeConfig(ledgerPath)

		a, err := newApp(context.Background(), false)
		Expect(err).To(MatchError(ContainSubstring("failed to open source ledger")))
		Expect(a).To(BeNil())
	})

	Describe("migrate", func() {
		It("should refuse a local target", func() {
			configPath = writeConfig(filepath.Join(dir, "sources.json"))
			Expect(migrateCmd.Flags().Set("to", "chromadb")).To(Succeed())
			DeferCleanup(func() { Expect(migrateCmd.Flags().Set("to", "qdrant")).To(Succeed()) })

			err := runMigrate(migrateCmd, nil)
			Expect(err).To(MatchError(ContainSubstring("must be a remote store")))
		})

		It("should reject an unknown target", func() {
			Expect(migrateCmd.Flags().Set("to", "redis")).To(Succeed())
			DeferCleanup(func() { Expect(migrateCmd.Flags().Set("to", "qdrant")).To(Succeed()) })

			Expect(runMigrate(migrateCmd, nil)).ToNot(Succeed())
		})
	})
})
