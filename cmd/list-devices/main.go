//go:build linux

package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/adamlouis/decimator/capture"
	"github.com/adamlouis/decimator/frame"
)

func main() {
	dir := flag.String("dir", capture.VIDEO4LINUX_DIR, "sysfs video4linux directory")
	formats := flag.Bool("formats", false, "list the pixel formats and frame sizes of each device")
	flag.Parse()

	devices, err := capture.ListDevices(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Printf("No valid video devices found in %q\n", *dir)
		return
	}

	paths := make([]string, 0, len(devices))
	for devPath := range devices {
		paths = append(paths, devPath)
	}
	sort.Strings(paths)

	fmt.Println("Video devices found:")
	for _, devPath := range paths {
		fmt.Printf("  %q located in %s\n", devices[devPath], devPath)
		if *formats {
			printFormats(devPath)
		}
	}
}

func printFormats(devPath string) {
	cam, err := capture.OpenV4L2(devPath, nil)
	if err != nil {
		fmt.Printf("    %v\n", err)
		return
	}
	defer cam.Close()

	supported := cam.SupportedFormats()
	codes := make([]frame.PixelFormat, 0, len(supported))
	for f := range supported {
		codes = append(codes, f)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	for _, f := range codes {
		_, size := frame.Layout(640, 480, f)
		note := ""
		if size == 0 {
			note = " (no buffer layout)"
		}
		fmt.Printf("    %s %s%s\n", f, supported[f], note)
		for _, s := range cam.SupportedFrameSizes(f) {
			fmt.Printf("      %s\n", s)
		}
	}
}
