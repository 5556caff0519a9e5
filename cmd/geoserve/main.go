package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbocation/exprnorm"
	_ "github.com/carbocation/exprnorm/compileinfoprint"
	"github.com/carbocation/exprnorm/geo"
	"github.com/carbocation/exprnorm/outputs"
)

func main() {
	errors := make(chan error, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGUSR1,
	)

	var dbPath, cacheDir, outDir string
	var port int
	var download bool

	flag.StringVar(&dbPath, "db", "geo.sqlite3", "Path of the SQLite dataset index built by geoindex.")
	flag.StringVar(&cacheDir, "cache", "~/.cache/exprnorm/geo", "Directory holding <GDS>.soft.gz files.")
	flag.BoolVar(&download, "download", false, "(Optional) If true, datasets missing from the cache are downloaded from NCBI when requested.")
	flag.StringVar(&outDir, "output", "", "(Optional) Directory where every served table is also written.")
	flag.IntVar(&port, "port", 9020, "Port for HTTP server")
	flag.Parse()

	idx, err := geo.OpenSQLIndex(exprnorm.ExpandHome(dbPath))
	if err != nil {
		log.Fatalln(err)
	}
	defer idx.Close()

	lg := log.New(os.Stderr, log.Prefix(), log.Ldate|log.Ltime)
	global := &Global{
		Site: "GEO datasets",
		log:  lg,
		hub:  outputs.NewHub(),
	}

	if outDir != "" {
		if err := global.hub.Subscribe(geo.ChannelExpression, outputs.TSVSink{Dir: outDir}); err != nil {
			log.Fatalln(err)
		}
	}

	cache := geo.LocalCache{Dir: cacheDir}
	fetcher := &geo.SOFTFetcher{Cache: cache}
	if download {
		fetcher.Downloader = &geo.Downloader{Cache: cache, Retries: 3, Logger: lg}
	}

	global.browser = geo.NewBrowser(geo.BrowserOptions{
		Index:     idx,
		Cache:     cache,
		Fetcher:   fetcher,
		Publisher: global.hub,
		Logger:    lg,
	})

	if err := global.browser.Load(context.Background()); err != nil {
		log.Fatalln(err)
	}

	global.log.Println("Launching", global.Site)

	go func() {
		global.log.Println("Starting HTTP server on port", port)
		if err := http.ListenAndServe(fmt.Sprintf(`:%d`, port), router(global)); err != nil {
			errors <- err
			global.log.Println(err)
			sig <- syscall.SIGTERM
			return
		}
	}()

Outer:
	for {
		select {
		case sigl := <-sig:
			// SIGUSR1 reloads the index
			if sigl == syscall.SIGUSR1 {
				if err := global.browser.Load(context.Background()); err != nil {
					global.log.Println("Reload failed:", err)
				}
				continue
			}

			global.log.Printf("\nExit: %s\n", sigl.String())

			break Outer

		case err := <-errors:
			if err == nil {
				global.log.Println("Finished")
				break Outer
			}

			// Return a status code indicating failure
			global.log.Println("Exiting due to error", err)
			os.Exit(1)
		}
	}
}
