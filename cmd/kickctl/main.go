// kickctl manages operator keys, signs API requests and runs migrations.
//
//	kickctl keygen -password ...
//	kickctl sign -address <pubkey> -password ... -method POST -uri /campaigns -body '{"..."}'
//	kickctl sign -address <funder> -validator <validator> -uri /campaigns/<address>/private-fund -body '{"..."}'
//	kickctl migrate up|down
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"kickstarter/internal/middleware"
	"kickstarter/pkg/config"
	kssolana "kickstarter/pkg/solana"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func usage() {
	fmt.Println("Usage: kickctl <keygen|sign|migrate> [flags]")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	switch os.Args[1] {
	case "keygen":
		keygen(cfg, os.Args[2:])
	case "sign":
		sign(cfg, os.Args[2:])
	case "migrate":
		migrateCmd(cfg, os.Args[2:])
	default:
		usage()
	}
}

func keygen(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	password := fs.String("password", os.Getenv("KEYSTORE_PASSWORD"), "keystore password")
	_ = fs.Parse(args)
	if *password == "" {
		log.Fatal("-password or KEYSTORE_PASSWORD is required")
	}

	km := kssolana.NewKeyManager(cfg.KeystoreDir)
	account, err := km.GenerateKeyPair()
	if err != nil {
		log.Fatal("Failed to generate keypair: ", err)
	}
	path, err := km.SaveKeyStoreEntry(account, *password)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Address: %s\n", account.PublicKey.ToBase58())
	fmt.Printf("Keystore: %s\n", path)
}

// sign prints the headers of a signed request. With -validator the request
// is countersigned by a second keystore entry.
func sign(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	address := fs.String("address", "", "signer address in the keystore")
	password := fs.String("password", os.Getenv("KEYSTORE_PASSWORD"), "keystore password")
	validator := fs.String("validator", "", "countersigning validator address in the keystore")
	validatorPassword := fs.String("validator-password", os.Getenv("VALIDATOR_KEYSTORE_PASSWORD"), "validator keystore password")
	method := fs.String("method", "POST", "HTTP method")
	uri := fs.String("uri", "", "request uri including the query string")
	body := fs.String("body", "", "request body")
	timestamp := fs.Int64("timestamp", time.Now().Unix(), "signing time in unix seconds")
	nonce := fs.String("nonce", uuid.NewString(), "request nonce")
	_ = fs.Parse(args)
	if *address == "" || *uri == "" {
		fmt.Println("Usage example: kickctl sign -address <pubkey> -uri /campaigns/<address>/public-round")
		os.Exit(1)
	}

	km := kssolana.NewKeyManager(cfg.KeystoreDir)
	account, err := km.LoadKeyStoreEntry(*address, *password)
	if err != nil {
		log.Fatal(err)
	}
	payload := middleware.SigningPayload(*method, *uri, *timestamp, *nonce, []byte(*body))
	fmt.Printf("%s: %s\n", middleware.HeaderSigner, account.PublicKey.ToBase58())
	fmt.Printf("%s: %s\n", middleware.HeaderSignature, kssolana.SignMessage(account, payload))
	fmt.Printf("%s: %d\n", middleware.HeaderTimestamp, *timestamp)
	fmt.Printf("%s: %s\n", middleware.HeaderNonce, *nonce)

	if *validator == "" {
		return
	}
	cosigner, err := km.LoadKeyStoreEntry(*validator, *validatorPassword)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %s\n", middleware.HeaderValidator, cosigner.PublicKey.ToBase58())
	fmt.Printf("%s: %s\n", middleware.HeaderValidatorSignature, kssolana.SignMessage(cosigner, payload))
}

func migrateCmd(cfg *config.Config, args []string) {
	if len(args) != 1 || (args[0] != "up" && args[0] != "down") {
		usage()
	}
	if cfg.DBDriver != "postgres" {
		log.Fatal("SQL migrations only run against postgres")
	}
	db, err := config.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if args[0] == "down" {
		err = config.RollbackMigration(db, cfg.MigrationsDir)
	} else {
		err = config.ExecuteMigrations(db, cfg.MigrationsDir)
	}
	if err != nil {
		log.Fatal(err)
	}
}
