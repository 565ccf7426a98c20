package prompt

// builtinTemplates maps template filename to content. One template per
// performer; projects override any of these via .autoloop/templates/.
var builtinTemplates = map[string]string{
	"task.md":    taskTemplate,
	"cleanup.md": cleanupTemplate,
	"deploy.md":  deployTemplate,
	"review.md":  reviewTemplate,
}

const taskTemplate = `# Work the next task

> **Do not invoke any skills or slash commands** (e.g. /commit or any /command). Use only built-in tools.

## Context
The shared whiteboard is at {{whiteboard_path}}. Read it first; it carries
state from previous iterations: decisions made, gotchas discovered, and
anything the last run left half-finished.

Tasks are tracked with the beans CLI under the "{{tracker_tag}}" tag:

` + "```" + `bash
beans query --json '{ beans(filter: { tags: ["{{tracker_tag}}"] }) { id title status type priority } }'
` + "```" + `

## Instructions
1. Read {{whiteboard_path}} for context from earlier iterations.
2. List the pending tasks (status todo, in-progress, or draft) and pick the
   highest-priority one. Prefer finishing an in-progress task over starting
   a new one.
3. Mark it in-progress: ` + "`beans update <id> --status in-progress`" + `
4. Implement it. Read the relevant code before changing it. Write or update
   tests for your changes and run them.
5. When the work is done and tests pass, commit your changes and mark the
   task completed: ` + "`beans update <id> --status completed`" + `
6. Update {{whiteboard_path}} with what you did, anything surprising you
   found, and what the next iteration should know. Keep it short, replace
   stale notes rather than appending forever.

Work on exactly one task this iteration. If the task turns out to be
impossible or obsolete, mark it scrapped with a note explaining why.
`

const cleanupTemplate = `# Cleanup and verification pass

> **Do not invoke any skills or slash commands** (e.g. /commit or any /command). Use only built-in tools.

## Context
The shared whiteboard is at {{whiteboard_path}}. Tasks are tracked with the
beans CLI under the "{{tracker_tag}}" tag.

This is a periodic housekeeping iteration. No new feature work; your job is
to make sure the tracker reflects reality and the codebase is healthy.

## Instructions
1. Read {{whiteboard_path}}.
2. Verify task statuses against the code:
   - For every task marked completed recently, confirm the work actually
     exists and its tests pass. Reopen (status todo) anything that does not
     hold up, with a comment on what is missing.
   - For every in-progress task, check whether it was actually finished and
     just never marked. Update statuses to match reality.
3. Run the full test suite. Fix any failures you find; broken tests left
   behind by earlier iterations are yours to repair.
4. Look for debris from previous iterations: leftover debug output, dead
   code, stray TODO files, uncommitted changes. Clean up and commit.
5. Prune the whiteboard: delete notes that no longer apply, keep what the
   next iteration still needs.
6. If you discover genuinely missing work, file it as a new task with the
   "{{tracker_tag}}" tag instead of doing it now.
`

const deployTemplate = `# Deploy and verify

> **Do not invoke any skills or slash commands** (e.g. /commit or any /command). Use only built-in tools.

## Context
The shared whiteboard is at {{whiteboard_path}}. Tasks are tracked with the
beans CLI under the "{{tracker_tag}}" tag.

This is a deployment iteration: get the accumulated completed work built,
shipped, and verified end to end.

## Instructions
1. Read {{whiteboard_path}} and check how the project is built and run;
   read the Makefile or equivalent in the repo root before guessing at
   commands.
2. Run the full build and test suite. Fix anything that fails before going
   further.
3. Commit any uncommitted work and push.
4. If the project has a deploy target or script, run it. Otherwise start the
   application locally the way the Makefile describes.
5. Exercise the deployed application for real: hit its endpoints, run its
   CLI, observe actual output. Do not reason about the code; observe the
   behavior.
6. File a task (tagged "{{tracker_tag}}") for every defect you observe
   rather than fixing it inline, unless the deploy itself is broken; a
   broken deploy you fix now.
7. Record the deploy outcome in {{whiteboard_path}}: what shipped, what was
   verified, what was filed.
`

const reviewTemplate = `# Review pass

> **Do not invoke any skills or slash commands** (e.g. /commit or any /command). Use only built-in tools.

## Context
The shared whiteboard is at {{whiteboard_path}}. Tasks are tracked with the
beans CLI under the "{{tracker_tag}}" tag.

This is a review iteration. You observe and file; you do **not** implement
fixes this iteration.

## Instructions
1. Read {{whiteboard_path}}.
2. Review the work of recent iterations with fresh eyes: ` + "`git log`" + `,
   ` + "`git diff`" + ` against the last review point, and the user-facing surface
   (UI, API responses, CLI output) if the project has one.
3. Assume the work is wrong until proven otherwise. Look for: unhandled
   error paths, missing edge cases, inconsistent naming, confusing UX,
   untested code paths, silently broken existing behavior.
4. For each real problem, file a task with the "{{tracker_tag}}" tag,
   concrete enough that a later iteration can implement it without asking
   questions. Include the file and the observed behavior.
5. Summarize your findings in {{whiteboard_path}}.

Do not change application code. Filing well-scoped tasks is the entire
deliverable of this iteration.
`
