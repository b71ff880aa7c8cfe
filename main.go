package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"btreekv/cli"
	"btreekv/db"

	"github.com/go-faker/faker/v4"
	"go.uber.org/zap"
)

var (
	dataFolder, logPath                       *string
	degree, seedNumRecords                    *int
	shouldReset, shouldSeed, runDemo, verbose *bool
)

func eraseDataFolder() {
	if err := os.RemoveAll(*dataFolder); err != nil {
		panic(err)
	}
}

func newLogger() (*zap.Logger, error) {
	if *verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// seedDatabaseWithTestRecords creates records with random keys and faker words as values.
func seedDatabaseWithTestRecords(d *db.DB) error {
	for i := 0; i < *seedNumRecords; i++ {
		k := rand.Int63n(int64(*seedNumRecords) * 10)
		v := faker.Word() + " " + faker.Word()
		if _, err := d.Create(k, v); err != nil {
			return err
		}
	}
	return nil
}

// performanceTest replays the scripted sequence and reports memory before and after it.
func performanceTest(d *db.DB) error {
	fmt.Printf("Memory usage before operations: %.2f MB\n", d.MemoryUsage())

	for _, k := range []int64{10, 20, 5, 6} {
		if _, err := d.Create(k, fmt.Sprintf("Value %d", k)); err != nil {
			return err
		}
	}
	if _, _, err := d.Read(10); err != nil {
		return err
	}
	if _, err := d.Update(10, "New Value 10"); err != nil {
		return err
	}
	if _, _, err := d.Read(10); err != nil {
		return err
	}
	if _, err := d.Delete(10); err != nil {
		return err
	}

	fmt.Println(d)
	fmt.Printf("Memory usage after operations: %.2f MB\n", d.MemoryUsage())
	return nil
}

func main() {
	setupFlags()

	logger, err := newLogger()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if *shouldReset {
		eraseDataFolder()
	}

	cfg := db.DefaultConfig()
	cfg.Dir = *dataFolder
	cfg.Degree = *degree
	cfg.LogPath = *logPath
	cfg.Logger = logger
	d, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("close database", zap.Error(err))
		}
	}()

	if *shouldSeed {
		if err := seedDatabaseWithTestRecords(d); err != nil {
			logger.Error("seed database", zap.Error(err))
			return
		}
	}

	if *runDemo {
		if err := performanceTest(d); err != nil {
			logger.Error("performance test", zap.Error(err))
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	demo := cli.NewCli(scanner, os.Stdout, d)
	if err := demo.Start(); err != nil {
		logger.Error("cli", zap.Error(err))
	}
}

func setupFlags() {
	defaults := db.DefaultConfig()
	dataFolder = flag.String("dir", defaults.Dir, "Directory holding the key-value table.")
	logPath = flag.String("log", defaults.LogPath, "CSV file every operation is logged to.")
	degree = flag.Int("degree", defaults.Degree, "Minimum degree of the B-tree index.")
	shouldReset = flag.Bool("reset", false, "Reset the database by erasing its folder before startup.")
	shouldSeed = flag.Bool("seed", false, "Seed the database using records created with go-faker.")
	seedNumRecords = flag.Int("records", 1000, "Amount of records to seed the database with upon startup.")
	runDemo = flag.Bool("demo", false, "Run the scripted performance test instead of the CLI.")
	verbose = flag.Bool("verbose", false, "Use the human-friendly development logger.")
	flag.Usage = func() {
		fmt.Println("\nB-Tree DB CLI\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}
