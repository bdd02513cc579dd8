//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eliteGoblin/filewatchd/internal/daemon"
	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/infra"
	"github.com/eliteGoblin/filewatchd/internal/policy"
	"github.com/eliteGoblin/filewatchd/internal/usecase"
	"github.com/eliteGoblin/filewatchd/test/fixtures"
)

// shiftedClock reports the real time moved by offset. ctime cannot be
// backdated, so tests age files by moving the clock forward instead.
type shiftedClock struct {
	offset time.Duration
}

func (c shiftedClock) Now() time.Time {
	return time.Now().Add(c.offset)
}

var _ = Describe("Retention sweep", func() {
	var (
		tmpDir  string
		target  domain.WatchTarget
		fixture *fixtures.WatchedDir
		logs    *observer.ObservedLogs
		logger  *zap.Logger
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "filewatchd-integration-*")
		Expect(err).NotTo(HaveOccurred())

		target, err = infra.ResolveWatchTarget(tmpDir, "/")
		Expect(err).NotTo(HaveOccurred())

		fixture = fixtures.NewWatchedDir(tmpDir)
		Expect(fixture.Create()).To(Succeed())

		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		logger = zap.New(core)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	sweepWithOffset := func(offset time.Duration) domain.SweepResult {
		sweeper := usecase.NewSweeper(infra.NewFileSystem(), shiftedClock{offset: offset}, policy.Default(), logger)
		return sweeper.Sweep(context.Background(), target)
	}

	Describe("Sweep", func() {
		Context("when every file is older than the lifespan", func() {
			It("should delete all top-level regular files", func() {
				result := sweepWithOffset(policy.DefaultFileLifespan + time.Minute)

				for _, name := range fixtures.RegularFiles {
					Expect(fixture.Exists(name)).To(BeFalse(), name)
				}
				Expect(result.Deleted).To(HaveLen(len(fixtures.RegularFiles)))
				Expect(result.Errors).To(BeEmpty())
			})

			It("should never delete subdirectories, their contents, symlinks or fifos", func() {
				result := sweepWithOffset(365 * 24 * time.Hour)

				for _, name := range fixtures.NonRegular() {
					Expect(fixture.Exists(name)).To(BeTrue(), name)
				}
				Expect(result.Skipped).To(Equal(3))
			})

			It("should log each deletion with the full path", func() {
				sweepWithOffset(policy.DefaultFileLifespan + time.Minute)

				deletions := logs.FilterMessage("deleting file").All()
				Expect(deletions).To(HaveLen(len(fixtures.RegularFiles)))
				for _, entry := range deletions {
					Expect(entry.Level).To(Equal(zapcore.InfoLevel))
					Expect(filepath.Dir(entry.ContextMap()["path"].(string))).To(Equal(tmpDir))
				}
			})
		})

		Context("when files are younger than the lifespan", func() {
			It("should keep them untouched", func() {
				before, err := os.Stat(fixture.Path("report.csv"))
				Expect(err).NotTo(HaveOccurred())

				result := sweepWithOffset(policy.DefaultFileLifespan - time.Minute)

				for _, name := range fixtures.RegularFiles {
					Expect(fixture.Exists(name)).To(BeTrue(), name)
				}
				after, err := os.Stat(fixture.Path("report.csv"))
				Expect(err).NotTo(HaveOccurred())
				Expect(after.ModTime()).To(Equal(before.ModTime()))
				Expect(result.Retained).To(Equal(len(fixtures.RegularFiles)))
				Expect(logs.FilterLevelExact(zapcore.ErrorLevel).Len()).To(Equal(0))
			})
		})

		Context("when the directory cannot be opened", func() {
			It("should log one error and delete nothing", func() {
				missing := domain.WatchTarget(filepath.Join(tmpDir, "gone"))
				sweeper := usecase.NewSweeper(infra.NewFileSystem(), shiftedClock{offset: 48 * time.Hour}, policy.Default(), logger)

				result := sweeper.Sweep(context.Background(), missing)

				Expect(result.Deleted).To(BeEmpty())
				Expect(result.Errors).To(HaveLen(1))
				Expect(logs.FilterLevelExact(zapcore.ErrorLevel).Len()).To(Equal(1))
				for _, name := range fixtures.RegularFiles {
					Expect(fixture.Exists(name)).To(BeTrue(), name)
				}
			})
		})

		Context("when the directory is empty", func() {
			It("should do nothing and log nothing", func() {
				empty := domain.WatchTarget(filepath.Join(tmpDir, "nested-empty"))
				Expect(os.Mkdir(empty.String(), 0755)).To(Succeed())
				sweeper := usecase.NewSweeper(infra.NewFileSystem(), shiftedClock{offset: 48 * time.Hour}, policy.Default(), logger)

				result := sweeper.Sweep(context.Background(), empty)

				Expect(result.Scanned).To(Equal(0))
				Expect(logs.Len()).To(Equal(0))
			})
		})
	})

	Describe("Service", func() {
		It("should sweep repeatedly and publish a record until canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			registry := infra.NewFileRegistryWithDir(filepath.Join(tmpDir, "nested", "run"))
			sweeper := usecase.NewSweeper(infra.NewFileSystem(), shiftedClock{offset: 48 * time.Hour}, policy.Default(), logger)
			config := daemon.ServiceConfig{
				Target:    target,
				Scheduler: daemon.SchedulerConfig{CheckInterval: 10 * time.Millisecond},
			}

			done := make(chan error, 1)
			go func() {
				done <- daemon.NewService(config, sweeper, registry, infra.NewMetrics(), logger).Run(ctx)
			}()

			Eventually(func() bool {
				alive, _ := registry.IsAlive(target)
				return alive
			}, 5*time.Second, 10*time.Millisecond).Should(BeTrue())

			Eventually(func() int {
				return logs.FilterMessage("sweep completed").Len()
			}, 5*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 2))

			for _, name := range fixtures.RegularFiles {
				Expect(fixture.Exists(name)).To(BeFalse(), name)
			}

			cancel()
			Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))

			record, err := registry.Lookup(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(BeNil())
		})
	})
})
