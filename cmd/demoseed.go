package cmd

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	gossh "golang.org/x/crypto/ssh"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
)

var demoSeedEvery string

// demoRepo is the Go translation of demo.py's DemoDataCreator.__create_repo
// argument tuple: a conan-center-index recipe pinned to one version, with
// optional build options.
type demoRepo struct {
	name, path, version string
	options             map[string]string
}

var demoSeedCmd = &cobra.Command{
	Use:   "demoseed",
	Short: "Seed the database with a demo ecosystem for local smoke-testing",
	Long: `demoseed populates a single ecosystem with a Conan remote, an SSH
identity, two build profiles (Linux/GCC and Windows/MSVC release), a
"Releases" channel, and the conan-center-index recipes that make up glib's
dependency chain -- enough to exercise the full crawl -> schedule -> build ->
unblock loop without hand-authoring fixtures. Safe to run repeatedly: the
ecosystem singleton is upserted, not duplicated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := seedDemoData(ctx, db); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
		slog.Info("Demo ecosystem seeded")

		if demoSeedEvery == "" {
			return nil
		}

		c := cron.New()
		if _, err := c.AddFunc(demoSeedEvery, func() {
			if err := seedDemoData(context.Background(), db); err != nil {
				slog.Error("Re-seeding demo data", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("parsing --every schedule: %w", err)
		}
		slog.Info("Re-seeding on schedule", "schedule", demoSeedEvery)
		c.Run()
		return nil
	},
}

func init() {
	demoSeedCmd.Flags().StringVar(&demoSeedEvery, "every", "", "re-seed on this cron schedule (e.g. \"@every 1h\"); default: seed once and exit")
}

// seedDemoData mirrors demo.py's DemoDataCreator.create: one ecosystem, two
// profiles, one channel, and the recipes that make up glib's build chain so
// a fresh deployment has something to crawl/schedule/build immediately.
func seedDemoData(ctx context.Context, db store.DB) error {
	ecosystem, err := store.GetEcosystem(ctx, db)
	if err != nil {
		return fmt.Errorf("loading ecosystem singleton: %w", err)
	}

	if ecosystem.SSHKey == "" {
		privPEM, pubAuthorized, err := generateDemoSSHKey()
		if err != nil {
			return fmt.Errorf("generating demo SSH key: %w", err)
		}
		ecosystem.SSHKey = base64.StdEncoding.EncodeToString(privPEM)
		ecosystem.PublicSSHKey = pubAuthorized
	}
	ecosystem.Name = "Demo"
	ecosystem.ConanConfigURL = "https://github.com/uboot/conan-config.git"
	ecosystem.ConanConfigPath = "default"
	ecosystem.ConanConfigBranch = "master"
	ecosystem.ConanRemote = "uboot"
	ecosystem.ConanUser = "agent"
	if err := store.UpsertEcosystem(ctx, db, ecosystem); err != nil {
		return fmt.Errorf("upserting ecosystem: %w", err)
	}

	if _, err := upsertDemoProfile(ctx, db, ecosystem.ID, "GCC 9 Release", model.PlatformLinux, "uboot/gcc9:latest", "linux-release"); err != nil {
		return err
	}
	if _, err := upsertDemoProfile(ctx, db, ecosystem.ID, "MSVC 15 Release", model.PlatformWindows, "uboot/msvc15:latest", "windows-release"); err != nil {
		return err
	}

	if err := upsertDemoChannel(ctx, db, ecosystem.ID, "Releases", "heads/main"); err != nil {
		return err
	}

	for _, r := range demoRepos {
		if err := upsertDemoRepo(ctx, db, ecosystem.ID, r); err != nil {
			return fmt.Errorf("seeding repo %s: %w", r.name, err)
		}
	}
	return nil
}

// demoRepos is glib's dependency chain from conan-center-index, walked by
// the crawler + scheduler + result manager exactly as any other repo set
// would be -- this is what proves out the missing-recipe unblock path with
// nothing but `buildforge demoseed && buildforge run`.
var demoRepos = []demoRepo{
	{name: "glib", path: "recipes/glib/all", version: "2.70.4", options: map[string]string{
		"glib:with_elf":     "False",
		"glib:with_selinux": "False",
		"glib:with_mount":   "False",
	}},
	{name: "zlib", path: "recipes/zlib/all", version: "1.2.12"},
	{name: "libffi", path: "recipes/libffi/all", version: "3.4.2"},
	{name: "gnu-config", path: "recipes/gnu-config/all", version: "cci.20201022"},
	{name: "pcre", path: "recipes/pcre/all", version: "8.45"},
	{name: "bzip2", path: "recipes/bzip2/all", version: "1.0.8"},
	{name: "meson", path: "recipes/meson/all", version: "0.60.2"},
	{name: "ninja", path: "recipes/ninja/1.10.x", version: "1.10.2"},
	{name: "pkgconf", path: "recipes/pkgconf/all", version: "1.7.4"},
	{name: "automake", path: "recipes/automake/all", version: "1.16.3"},
	{name: "autoconf", path: "recipes/autoconf/all", version: "2.71"},
	{name: "m4", path: "recipes/m4/all", version: "1.4.19"},
}

const demoRepoURL = "https://github.com/conan-io/conan-center-index.git"

// idRow is the scan target for the find-by-name half of the three
// find-or-create helpers below.
type idRow struct {
	ID int64 `db:"id"`
}

func findIDByName(ctx context.Context, db store.DB, table string, ecosystemID int64, name string) (int64, bool) {
	var row idRow
	query := fmt.Sprintf(`SELECT id FROM %s WHERE ecosystem_id = ? AND name = ?`, table)
	if err := db.Get(ctx, &row, query, ecosystemID, name); err != nil {
		return 0, false
	}
	return row.ID, true
}

func upsertDemoRepo(ctx context.Context, db store.DB, ecosystemID int64, r demoRepo) error {
	id, found := findIDByName(ctx, db, "repo", ecosystemID, r.name)
	repo := &model.Repo{ID: id, EcosystemID: ecosystemID, Name: r.name, URL: demoRepoURL, Path: r.path, Version: r.version}
	if found {
		if err := db.Update(ctx, "repo", repo, "id = ?", repo.ID); err != nil {
			return err
		}
	} else {
		newID, err := db.Insert(ctx, "repo", repo)
		if err != nil {
			return err
		}
		repo.ID = newID
	}

	if err := db.Exec(ctx, `DELETE FROM option WHERE repo_id = ?`, repo.ID); err != nil {
		return err
	}
	for key, value := range r.options {
		if err := db.Exec(ctx, `INSERT INTO option (key, value, repo_id) VALUES (?, ?, ?)`, key, value, repo.ID); err != nil {
			return err
		}
	}
	return nil
}

func upsertDemoProfile(ctx context.Context, db store.DB, ecosystemID int64, name string, platform model.Platform, container, conanProfile string) (*model.Profile, error) {
	id, found := findIDByName(ctx, db, "profile", ecosystemID, name)
	profile := &model.Profile{ID: id, EcosystemID: ecosystemID, Name: name, Platform: platform, Container: container, ConanProfile: conanProfile}
	if found {
		return profile, db.Update(ctx, "profile", profile, "id = ?", profile.ID)
	}
	newID, err := db.Insert(ctx, "profile", profile)
	if err != nil {
		return nil, err
	}
	profile.ID = newID
	return profile, nil
}

func upsertDemoChannel(ctx context.Context, db store.DB, ecosystemID int64, name, refPattern string) error {
	id, found := findIDByName(ctx, db, "channel", ecosystemID, name)
	channel := &model.Channel{ID: id, EcosystemID: ecosystemID, Name: name, RefPattern: refPattern}
	if found {
		return db.Update(ctx, "channel", channel, "id = ?", channel.ID)
	}
	_, err := db.Insert(ctx, "channel", channel)
	return err
}

// generateDemoSSHKey creates a throwaway 2048-bit RSA keypair, PEM-encoding
// the private half and authorized_keys-encoding the public half, matching
// sonja.ssh.generate_rsa_key's role in demo.py.
func generateDemoSSHKey() (privPEM []byte, pubAuthorized string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, "", err
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	sshPub, err := gossh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return nil, "", err
	}
	return pem.EncodeToMemory(block), string(gossh.MarshalAuthorizedKey(sshPub)), nil
}
