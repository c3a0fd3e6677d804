package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/werkzeug/pkg/storage"
)

// Deployment pipeline commands. The pipeline is fixed: clone into appDir,
// install and build with npm, then serve the build output with a static
// file server on port 8000.
const (
	appDir   = "/home/user/app"
	distDir  = "/home/user/app/dist"
	serveCmd = "cd " + distDir + " && nohup python3 -m http.server 8000 > /tmp/server.log 2>&1 &"
	probeCmd = "ps aux | grep 'http.server' | grep -v grep"
)

// deploy runs the clone→install→build→serve pipeline against the named
// sandbox. Steps 1-3 short-circuit on a non-zero exit code; there is no
// rollback of earlier steps. The serve step is fire-and-forget: success
// is inferred solely from a process-table probe after a grace period.
func (p *Provider) deploy(ctx context.Context, name, repoURL string) (string, bool) {
	rec, ok := p.store.Get(name)
	if !ok {
		return fmt.Sprintf("❌ Sandbox '%s' not found. Provision one first.", name), true
	}

	slog.Info("deploying", "name", name, "repo_url", repoURL)

	var steps []string

	// Step 1: clone.
	result, err := rec.Handle.Run(ctx, fmt.Sprintf("git clone %s %s", repoURL, appDir), 0)
	if err != nil {
		return p.deployError(ctx, name, err)
	}
	if result.ExitCode != 0 {
		return p.stepFailure(ctx, name, "Clone", result.Stderr)
	}
	steps = append(steps, "✅ Cloned")

	// Step 2: install dependencies.
	result, err = rec.Handle.Run(ctx, "cd "+appDir+" && npm install", p.config.StepTimeout)
	if err != nil {
		return p.deployError(ctx, name, err)
	}
	if result.ExitCode != 0 {
		return p.stepFailure(ctx, name, "Install", result.Stderr)
	}
	steps = append(steps, "✅ Installed")

	// Step 3: build.
	result, err = rec.Handle.Run(ctx, "cd "+appDir+" && npm run build", p.config.StepTimeout)
	if err != nil {
		return p.deployError(ctx, name, err)
	}
	if result.ExitCode != 0 {
		return p.stepFailure(ctx, name, "Build", result.Stderr)
	}
	steps = append(steps, "✅ Built")

	// Step 4: serve. The launch exit code is not checked; the detached
	// server is confirmed by probing the process table after the grace
	// period.
	if _, err = rec.Handle.Run(ctx, serveCmd, 0); err != nil {
		return p.deployError(ctx, name, err)
	}

	p.sleep(p.config.ServeGrace)

	result, err = rec.Handle.Run(ctx, probeCmd, 0)
	if err != nil {
		return p.deployError(ctx, name, err)
	}
	if result.ExitCode != 0 {
		p.deployments.WithLabelValues("serve_failed").Inc()
		p.record(ctx, storage.EventDeploy, name, repoURL, false)
		return "❌ Server failed to start", true
	}
	steps = append(steps, "✅ Server running")

	p.deployments.WithLabelValues("success").Inc()
	p.record(ctx, storage.EventDeploy, name, repoURL, true)

	return fmt.Sprintf("🎉 **Deployment Complete!**\n\n%s\n\n🔗 **Live URL:** %s",
		strings.Join(steps, "\n"), rec.BaseURL), false
}

// stepFailure reports a short-circuited pipeline step with its stderr.
func (p *Provider) stepFailure(ctx context.Context, name, step, stderr string) (string, bool) {
	p.deployments.WithLabelValues("step_failed").Inc()
	p.record(ctx, storage.EventDeploy, name, step+" failed", false)
	return fmt.Sprintf("❌ %s failed: %s", step, stderr), true
}

// deployError reports a transport failure anywhere in the pipeline.
func (p *Provider) deployError(ctx context.Context, name string, err error) (string, bool) {
	p.deployments.WithLabelValues("error").Inc()
	p.record(ctx, storage.EventDeploy, name, err.Error(), false)
	return fmt.Sprintf("❌ Deployment failed: %v", err), true
}
