package config

import (
	"flag"
	"os"

	"github.com/livebell/engine/internal/flagx"
)

// parseFlags populates selected engine Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-a string   ops endpoint bind address (e.g., ":8080")
//	-m string   AMQP broker URL
//	-q string   AMQP queue name
//	-w int      number of queue workers
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-a", "-m", "-q", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.OpsAddr, "a", config.OpsAddr, "ops endpoint address")
	fs.StringVar(&config.AMQPURL, "m", config.AMQPURL, "AMQP broker URL")
	fs.StringVar(&config.AMQPQueue, "q", config.AMQPQueue, "AMQP queue name")
	fs.IntVar(&config.WorkerCount, "w", config.WorkerCount, "queue worker count")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
