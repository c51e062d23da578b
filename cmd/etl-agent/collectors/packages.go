package collectors

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// CollectPackages returns the host's installed-package inventory, matching
// the models.PackageInfo wire shape the pkg/CVE mapping pipeline expects.
// It shells out to the platform package manager and tolerates its absence:
// an empty, non-error result means "nothing to report", not "look elsewhere".
func CollectPackages(ctx context.Context) ([]models.PackageInfo, error) {
	switch runtime.GOOS {
	case "linux":
		if pkgs, err := collectDpkg(ctx); err == nil && len(pkgs) > 0 {
			return pkgs, nil
		}
		return collectRpm(ctx)
	default:
		return nil, nil
	}
}

func collectDpkg(ctx context.Context) ([]models.PackageInfo, error) {
	cmd := exec.CommandContext(ctx, "dpkg-query", "-W", "-f", "${Package}\t${Version}\t${Architecture}\n")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseDpkgOutput(out), nil
}

func parseDpkgOutput(out []byte) []models.PackageInfo {
	var pkgs []models.PackageInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		pkg := models.PackageInfo{
			Name:    fields[0],
			Version: fields[1],
			Distro:  "debian",
		}
		if len(fields) >= 3 {
			pkg.Arch = fields[2]
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

func collectRpm(ctx context.Context) ([]models.PackageInfo, error) {
	cmd := exec.CommandContext(ctx, "rpm", "-qa", "--qf", "%{NAME}\t%{VERSION}\t%{RELEASE}\t%{ARCH}\n")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseRpmOutput(out), nil
}

func parseRpmOutput(out []byte) []models.PackageInfo {
	var pkgs []models.PackageInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 {
			continue
		}
		pkg := models.PackageInfo{
			Name:    fields[0],
			Version: fields[1],
			Distro:  "rhel",
		}
		if len(fields) >= 3 {
			pkg.Release = fields[2]
		}
		if len(fields) >= 4 {
			pkg.Arch = fields[3]
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}
