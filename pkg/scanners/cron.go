package scanners

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

// CronScanner audits jobs that cron runs as root.
type CronScanner struct {
	FS     hostfs.Inspector
	Config CronConfig
	Logger *zap.Logger
}

// NewCronScanner creates a new CronScanner
func NewCronScanner(fs hostfs.Inspector, cfg CronConfig, logger *zap.Logger) *CronScanner {
	return &CronScanner{FS: fs, Config: cfg, Logger: nopIfNil(logger, engine.ScannerCron)}
}

func (s *CronScanner) Name() string {
	return engine.ScannerCron
}

func (s *CronScanner) Description() string {
	return "Checks root cron jobs and periodic job directories for PATH hijacking, symlinks and writable scripts."
}

func (s *CronScanner) Scan(ctx context.Context) engine.ScanResult {
	var findings []engine.Finding
	if s.Config.Crontab != "" {
		findings = append(findings, s.scanCrontab(s.Config.Crontab)...)
	}
	for _, dir := range s.Config.PeriodicDirs {
		if ctx.Err() != nil {
			break
		}
		findings = append(findings, s.scanPeriodicDir(dir)...)
	}
	return result(ctx, s.Name(), findings)
}

// cronJob is one root job line of a crontab.
type cronJob struct {
	source  string
	line    int
	command []string
}

// parseCrontab extracts the jobs scheduled for root. Malformed lines,
// comments and environment assignments are skipped.
func parseCrontab(source string, lines []string) []cronJob {
	var jobs []cronJob
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if strings.Contains(fields[0], "=") {
			continue
		}

		var user string
		var command []string
		switch {
		case strings.HasPrefix(fields[0], "@"):
			// @reboot root cmd
			if len(fields) < 3 {
				continue
			}
			user, command = fields[1], fields[2:]
		case len(fields) >= 7:
			user, command = fields[5], fields[6:]
		default:
			continue
		}

		if user != "root" {
			continue
		}
		jobs = append(jobs, cronJob{source: source, line: i + 1, command: command})
	}
	return jobs
}

func (s *CronScanner) scanCrontab(file string) []engine.Finding {
	lines, err := s.FS.ReadFileLines(file)
	if err != nil {
		s.Logger.Debug("Skipping unreadable crontab", zap.String("path", file), zap.Error(err))
		return nil
	}

	var findings []engine.Finding
	for _, job := range parseCrontab(file, lines) {
		findings = append(findings, s.checkJob(job)...)
	}
	return findings
}

// checkJob applies the job rules in order. Every rule that holds yields its
// own finding, except a relative command which cannot be resolved further.
func (s *CronScanner) checkJob(job cronJob) []engine.Finding {
	exe, ok := jobExecutable(job.command)
	if !ok {
		return nil
	}
	cmdline := strings.Join(job.command, " ")
	where := fmt.Sprintf("%s:%d", job.source, job.line)

	if !strings.HasPrefix(exe, "/") {
		return []engine.Finding{{
			Category:                engine.CategoryCron,
			Type:                    engine.TypeCronPathHijack,
			Severity:                engine.SeverityHigh,
			Title:                   fmt.Sprintf("Root cron job runs %q without an absolute path", exe),
			AffectedComponent:       cmdline,
			Location:                where,
			ExploitationPossibility: "cron resolves the command through PATH; a writable directory earlier in PATH lets an attacker plant a binary of the same name that runs as root",
			SuggestedMitigation:     "Use the absolute path of the command in the crontab entry",
		}}
	}

	lfi, err := s.FS.Lstat(exe)
	if err != nil {
		s.Logger.Debug("Skipping cron job with missing executable", zap.String("job", where), zap.String("path", exe))
		return nil
	}

	var findings []engine.Finding
	if lfi.IsSymlink() {
		findings = append(findings, symlinkFinding(exe, where))
	}
	if fi, err := s.FS.Stat(exe); err == nil && hostfs.WritableByNonRoot(fi) {
		findings = append(findings, writableScriptFinding(exe, where))
	}
	dir := path.Dir(exe)
	if dfi, err := s.FS.Stat(dir); err == nil && hostfs.WritableByNonRoot(dfi) && !dfi.IsSticky() {
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryCron,
			Type:                    engine.TypeWritableCronScript,
			Severity:                engine.SeverityHigh,
			Title:                   "Root cron job script lives in a directory writable by non-root users",
			AffectedComponent:       dir,
			Location:                where,
			ExploitationPossibility: "Anyone able to write the directory can replace the script with their own before cron runs it as root",
			SuggestedMitigation:     "Remove group/world write permission from the directory (chmod go-w) or move the script to a root-only location",
		})
	}
	if underAny(exe, s.Config.TransientPrefixes) {
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryCron,
			Type:                    engine.TypeCronTiming,
			Severity:                engine.SeverityHigh,
			Title:                   "Root cron job executes from temporary storage",
			AffectedComponent:       exe,
			Location:                where,
			ExploitationPossibility: "Temporary directories are shared with every user; the file can be swapped between scheduling and execution",
			SuggestedMitigation:     "Move the job's executable to a root-owned directory such as /usr/local/sbin",
		})
	}
	return findings
}

func (s *CronScanner) scanPeriodicDir(dir string) []engine.Finding {
	dfi, err := s.FS.Stat(dir)
	if err != nil || !dfi.IsDir() {
		return nil
	}

	var findings []engine.Finding
	if hostfs.WritableByNonRoot(dfi) {
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryCron,
			Type:                    engine.TypeWritableCronDirectory,
			Severity:                engine.SeverityHigh,
			Title:                   "Periodic cron directory is writable by non-root users",
			AffectedComponent:       dir,
			ExploitationPossibility: "Any file dropped into the directory is executed by cron as root",
			SuggestedMitigation:     "Restore root:root ownership and mode 0755 on the directory",
		})
	}

	names, err := s.FS.ListChildren(dir)
	if err != nil {
		s.Logger.Debug("Skipping unreadable cron directory", zap.String("path", dir), zap.Error(err))
		return findings
	}

	isCronD := s.Config.ParseCronD && s.Config.CronD != "" && path.Clean(dir) == path.Clean(s.Config.CronD)
	for _, name := range names {
		entry := path.Join(dir, name)
		lfi, err := s.FS.Lstat(entry)
		if err != nil {
			continue
		}
		if lfi.IsSymlink() {
			findings = append(findings, symlinkFinding(entry, dir))
		}
		fi, err := s.FS.Stat(entry)
		if err != nil || !fi.IsRegular() {
			continue
		}
		if hostfs.WritableByNonRoot(fi) {
			findings = append(findings, writableScriptFinding(entry, dir))
		}
		if isCronD {
			findings = append(findings, s.scanCrontab(entry)...)
		}
	}
	return findings
}

// shellBuiltins never go through a PATH lookup, so they cannot be hijacked.
var shellBuiltins = map[string]bool{
	"cd": true, "[": true, "test": true, "true": true, "false": true,
	":": true, "export": true, "exec": true, "umask": true, "set": true,
	"if": true, "then": true, "else": true, "fi": true, "!": true,
	"exit": true, "return": true,
}

// jobExecutable returns the first command of the job line that is not a
// shell builtin. Commands chained with ;, && or || are all considered.
func jobExecutable(command []string) (string, bool) {
	start := true
	for _, tok := range command {
		switch tok {
		case ";", "&&", "||", "|":
			start = true
			continue
		}
		ends := strings.HasSuffix(tok, ";")
		word := strings.TrimRight(strings.TrimLeft(tok, "("), ";")
		switch {
		case !start || word == "":
		case shellBuiltins[word]:
			// keywords and exec are followed by another command
			start = word == "exec" || word == "!" || word == "if" || word == "then" || word == "else"
		default:
			return word, true
		}
		if ends {
			start = true
		}
	}
	return "", false
}

func symlinkFinding(p, where string) engine.Finding {
	return engine.Finding{
		Category:                engine.CategoryCron,
		Type:                    engine.TypeCronSymlink,
		Severity:                engine.SeverityHigh,
		Title:                   "Root cron job executes a symbolic link",
		AffectedComponent:       p,
		Location:                where,
		ExploitationPossibility: "Whoever controls the link target or can re-point the link decides what cron runs as root",
		SuggestedMitigation:     "Reference the real executable directly and verify the target is root-owned and not writable by others",
	}
}

func writableScriptFinding(p, where string) engine.Finding {
	return engine.Finding{
		Category:                engine.CategoryCron,
		Type:                    engine.TypeWritableCronScript,
		Severity:                engine.SeverityHigh,
		Title:                   "Cron executes a script writable by non-root users",
		AffectedComponent:       p,
		Location:                where,
		ExploitationPossibility: "Cron runs the script as root automatically; any change made to it runs with root privileges",
		SuggestedMitigation:     "Remove group/world write permission (chmod go-w) and make root the owning group",
	}
}
