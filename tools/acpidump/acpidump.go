// Command acpidump loads the DSDT and SSDT images exported by the firmware,
// runs them through the kernel's AML namespace loader and prints the
// hardware IDs of the devices it finds.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"kestrel/device/acpi"
	"kestrel/device/acpi/aml"
	"kestrel/device/acpi/table"
	"kestrel/kernel"
	"os"
	"path/filepath"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errNoHardware = &kernel.Error{Module: "acpidump", Message: "hardware access is not available"}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[acpidump] error: %s\n", err.Error())
	os.Exit(1)
}

// tableImage holds the contents of a table file. Images are mmapped when
// the file system allows it.
type tableImage struct {
	name   string
	data   []byte
	mapped bool
}

func (img *tableImage) close() error {
	if !img.mapped {
		return nil
	}
	img.mapped = false
	return unix.Munmap(img.data)
}

// loadImage maps the file at path read-only. Files that cannot be mapped,
// such as sysfs entries reporting a zero size, are read instead.
func loadImage(path string) (*tableImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img := &tableImage{name: filepath.Base(path)}

	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		if data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE); err == nil {
			img.data, img.mapped = data, true
			return img, nil
		}
	}

	if img.data, err = io.ReadAll(f); err != nil {
		return nil, err
	}
	return img, nil
}

// validate checks the SDT header and checksum of img and returns the
// header.
func validate(img *tableImage) (*table.SDTHeader, error) {
	sizeofHeader := int(unsafe.Sizeof(table.SDTHeader{}))
	if len(img.data) < sizeofHeader {
		return nil, fmt.Errorf("%s: file too short for an SDT header", img.name)
	}

	header := (*table.SDTHeader)(unsafe.Pointer(&img.data[0]))
	if int(header.Length) < sizeofHeader || int(header.Length) > len(img.data) {
		return nil, fmt.Errorf("%s: table length %d does not match file size %d", img.name, header.Length, len(img.data))
	}

	var sum uint8
	for _, b := range img.data[:header.Length] {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("%s: checksum mismatch", img.name)
	}

	return header, nil
}

// definitionBlocks returns the paths of the DSDT and SSDT images in dir
// with the DSDT first.
func definitionBlocks(dir string) ([]string, error) {
	ssdts, err := filepath.Glob(filepath.Join(dir, table.SignatureSSDT+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(ssdts)

	var paths []string
	if dsdt := filepath.Join(dir, table.SignatureDSDT); fileExists(dsdt) {
		paths = append(paths, dsdt)
	}

	paths = append(paths, ssdts...)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: no DSDT or SSDT images found", dir)
	}

	return paths, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dump loads the definition blocks in dir and writes one line per device
// to w. Problems with individual tables are reported to errW and the
// remaining tables are still processed.
func dump(dir string, w, errW io.Writer) error {
	paths, err := definitionBlocks(dir)
	if err != nil {
		return err
	}

	ctx := aml.NewContext(noHardware{}, errW)

	// The namespace references the table contents so the images stay
	// mapped until the devices have been listed.
	var images []*tableImage
	defer func() {
		for _, img := range images {
			_ = img.close()
		}
	}()

	var loaded int
	for _, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			fmt.Fprintf(errW, "[acpidump] %s\n", err)
			continue
		}
		images = append(images, img)

		header, err := validate(img)
		if err != nil {
			fmt.Fprintf(errW, "[acpidump] %s\n", err)
			continue
		}

		sizeofHeader := unsafe.Sizeof(table.SDTHeader{})
		if kerr := ctx.ParseTable(string(header.Signature[:]), header.Revision, img.data[sizeofHeader:header.Length]); kerr != nil {
			fmt.Fprintf(errW, "[acpidump] %s: %s\n", img.name, kerr.Message)
			continue
		}
		loaded++
	}

	if loaded == 0 {
		return errors.New("no definition block could be loaded")
	}

	for _, dev := range acpi.EnumerateDevices(ctx, errW) {
		fmt.Fprintf(w, "%-32s %s\n", dev.Path, dev.HID)
	}

	return nil
}

func main() {
	dir := flag.String("dir", "/sys/firmware/acpi/tables", "folder containing the ACPI table images")
	flag.Parse()

	if err := dump(*dir, os.Stdout, os.Stderr); err != nil {
		exit(err)
	}
}
