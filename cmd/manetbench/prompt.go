package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoProtocol = errors.New("no routing protocol chosen")

// promptProtocol asks until the answer is exactly aodv or dsdv.
func promptProtocol(in io.Reader, out io.Writer) (string, error) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Choose aodv or dsdv: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			fmt.Fprintln(out)
			return "", errNoProtocol
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "aodv" || answer == "dsdv" {
			return answer, nil
		}
		fmt.Fprintln(out, "Please enter 'aodv' or 'dsdv'.")
	}
}

func runningBanner(nodes int) string {
	return fmt.Sprintf("----------Running simulation with %d nodes----------", nodes)
}

func completedBanner(nodes int) string {
	return fmt.Sprintf("----------Simulation completed for %d nodes----------", nodes)
}
