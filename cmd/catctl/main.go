package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dougsko/catd/pkg/client"
)

var (
	address = pflag.StringP("address", "H", "127.0.0.1:4532", "catd TCP address")
	web     = pflag.StringP("web", "w", "127.0.0.1:8532", "catd web API address, used by --status")
	status  = pflag.BoolP("status", "S", false, "Show daemon status and exit")
	stdin   = pflag.BoolP("stdin", "i", false, "Read commands from standard input, one per line")
	timeout = pflag.DurationP("timeout", "T", 5*time.Second, "Connect and response timeout")
)

func main() {
	pflag.Usage = showHelp
	pflag.Parse()

	if *status {
		st, err := client.GetStatus(*web, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(st.String())
		return
	}

	rig := client.NewRigClient(*address)
	rig.SetTimeout(*timeout)
	defer rig.Close()

	if *stdin {
		scanner := bufio.NewScanner(os.Stdin)
		failed := false
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !run(rig, line) {
				failed = true
			}
		}
		if failed {
			os.Exit(2)
		}
		return
	}

	if pflag.NArg() == 0 {
		showHelp()
		return
	}

	if !run(rig, strings.Join(pflag.Args(), " ")) {
		os.Exit(2)
	}
}

// run sends one line and prints the response. It reports false on any failure.
func run(rig *client.RigClient, line string) bool {
	response, err := rig.SendCommand(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(response)

	var report *client.ReportError
	if err := client.CheckResponse(response); err != nil {
		if errors.As(err, &report) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", line, report)
		}
		return false
	}
	return true
}

func showHelp() {
	fmt.Println("catctl - catd control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	pflag.PrintDefaults()
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  f / F <hz>                Get / set receive frequency")
	fmt.Println("  i / I <hz>                Get / set transmit frequency")
	fmt.Println("  m / M <mode> <passband>   Get / set receive mode")
	fmt.Println("  x / X <mode> <passband>   Get / set transmit mode")
	fmt.Println("  t / T <0|1>               Get / set PTT")
	fmt.Println("  U <Simplex|Split|Duplex>  Select an operating mode")
	fmt.Println("  S <0|1> <vfo>             Split off / on")
	fmt.Println("  a                         Capabilities of the radio")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s U Simplex\n", os.Args[0])
	fmt.Printf("  %s F 145800000\n", os.Args[0])
	fmt.Printf("  %s --status\n", os.Args[0])
	fmt.Printf("  echo f | nc localhost 4532\n")
}
