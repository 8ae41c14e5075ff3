package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projecthub/internal/app"
	"projecthub/internal/domain"
	"projecthub/internal/engine"
)

func engineCommand(action domain.Action, user, project, payload string) engine.Command {
	cmd := engine.Command{Action: action, ActorID: user, ProjectID: project}
	if payload != "" {
		cmd.Payload = json.RawMessage(payload)
	}
	return cmd
}

// run resolves the acting user and opens the app for one command.
func run(fn func(a *app.App, user string) error) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	return withApp(func(a *app.App) error { return fn(a, user) })
}

func parseDay(flag, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("--%s: want YYYY-MM-DD", flag)
	}
	return &t, nil
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectStagesCmd())
	prj.AddCommand(projectTransitionCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project; the caller becomes its lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				opts.ActorID = user
				p, err := a.Engine.CreateProject(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().BoolVar(&opts.SeekingInvestment, "seeking-investment", false, "flag the project as seeking investment")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects the caller belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				items, err := a.Engine.ListProjects(cmd.Context(), user)
				if err != nil {
					return err
				}
				return printProjects(items...)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				p, err := a.Engine.GetProject(cmd.Context(), user, project)
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, description string
	var seeking bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit title, description or the investment flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			opts := engine.ProjectUpdateOptions{ID: project}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("seeking-investment") {
				opts.SeekingInvestment = &seeking
			}
			return run(func(a *app.App, user string) error {
				opts.ActorID = user
				p, err := a.Engine.UpdateProject(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&seeking, "seeking-investment", false, "seeking investment")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete a project that has no tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				if err := a.Engine.DeleteProject(cmd.Context(), user, project); err != nil {
					return err
				}
				fmt.Println("deleted", project)
				return nil
			})
		},
	}
}

func projectStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List lifecycle edges leaving the current stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				items, err := a.Engine.AvailableTransitions(cmd.Context(), user, project)
				if err != nil {
					return err
				}
				return printStageOptions(items)
			})
		},
	}
}

func projectTransitionCmd() *cobra.Command {
	var opts engine.StageTransitionOptions
	var to string
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Move the project to another stage",
		Example: `  phub project transition -u ana -p kiosk --to DRAFT --met "title and description provided"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				opts.ProjectID, opts.To, opts.ActorID = project, domain.Stage(to), user
				p, err := a.Engine.TransitionStage(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printProjects(p)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target stage")
	cmd.Flags().StringArrayVar(&opts.Met, "met", nil, "requirement asserted as met (repeatable)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note stored on the event")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				items, err := a.Engine.ListMembers(cmd.Context(), user, project)
				if err != nil {
					return err
				}
				return printMembers(items...)
			})
		},
	})
	m.AddCommand(memberSetCmd("add <user> <role>", "Invite a member", false))
	m.AddCommand(memberSetCmd("role <user> <role>", "Change a member's role", true))
	m.AddCommand(&cobra.Command{
		Use:   "remove <user>",
		Short: "Remove a member and unassign their open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				if err := a.Engine.RemoveMember(cmd.Context(), user, project, args[0]); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	})
	return m
}

func memberSetCmd(use, short string, change bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				opts := engine.MemberOptions{ProjectID: project, UserID: args[0], Role: domain.Role(args[1]), ActorID: user}
				op := a.Engine.AddMember
				if change {
					op = a.Engine.ChangeMemberRole
				}
				m, err := op(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printMembers(m)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskStatusCmd())
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskDeleteCmd())
	t.AddCommand(taskBlockCmd())
	t.AddCommand(taskUnblockCmd())
	t.AddCommand(taskDepCmd())
	t.AddCommand(taskCheckCmd())
	t.AddCommand(taskConflictsCmd())
	t.AddCommand(taskEstimateCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var status, priority, start, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			if opts.StartDate, err = parseDay("start", start); err != nil {
				return err
			}
			if opts.DueDate, err = parseDay("due", due); err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				opts.ProjectID, opts.ActorID = project, user
				opts.Status, opts.Priority = domain.TaskStatus(status), domain.Priority(priority)
				t, err := a.Engine.CreateTask(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&status, "status", "", "TODO or BACKLOG")
	cmd.Flags().StringVar(&priority, "priority", "", "CRITICAL, HIGH, MEDIUM or LOW")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().Float64Var(&opts.EstimatedHours, "hours", 0, "estimated hours")
	cmd.Flags().StringSliceVar(&opts.DependsOn, "depends-on", nil, "ids this task depends on")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f domain.TaskFilter
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				f.ProjectID, f.Status = project, domain.TaskStatus(status)
				items, err := a.Engine.ListTasks(cmd.Context(), user, f)
				if err != nil {
					return err
				}
				return printTasks(items...)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent task id")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its block and checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				t, err := a.Engine.GetTask(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.TaskStatus(args[1])
			return run(func(a *app.App, user string) error {
				t, err := a.Engine.UpdateTask(cmd.Context(), engine.TaskUpdateOptions{ID: args[0], Status: &status, ActorID: user})
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> [user]",
		Short: "Assign a task, or unassign it when user is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee := ""
			if len(args) == 2 {
				assignee = args[1]
			}
			return run(func(a *app.App, user string) error {
				t, err := a.Engine.UpdateTask(cmd.Context(), engine.TaskUpdateOptions{ID: args[0], AssigneeID: &assignee, ActorID: user})
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				if err := a.Engine.DeleteTask(cmd.Context(), user, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskBlockCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block <id>",
		Short: "Block a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				t, err := a.Engine.BlockTask(cmd.Context(), engine.BlockOptions{TaskID: args[0], Reason: reason, ActorID: user})
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is blocked")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Unblock a task, restoring its previous status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				t, err := a.Engine.UnblockTask(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
}

func taskDepCmd() *cobra.Command {
	dep := &cobra.Command{Use: "dep", Short: "Manage task dependencies"}
	var typ string
	add := &cobra.Command{
		Use:   "add <task> <depends-on>",
		Short: "Make task depend on another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				added, err := a.Engine.AddDependency(cmd.Context(), engine.DependencyOptions{
					TaskID: args[0], DependsOnID: args[1], Type: domain.DependencyType(typ), ActorID: user,
				})
				if err != nil {
					return err
				}
				if !added {
					fmt.Println("dependency already present")
					return nil
				}
				fmt.Printf("%s now depends on %s\n", args[0], args[1])
				return nil
			})
		},
	}
	add.Flags().StringVar(&typ, "type", "", "MUST_COMPLETE (default), MUST_START or SHOULD_COMPLETE")
	dep.AddCommand(add)
	dep.AddCommand(&cobra.Command{
		Use:   "rm <task> <depends-on>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				return a.Engine.RemoveDependency(cmd.Context(), engine.DependencyOptions{TaskID: args[0], DependsOnID: args[1], ActorID: user})
			})
		},
	})
	return dep
}

func taskCheckCmd() *cobra.Command {
	check := &cobra.Command{Use: "check", Short: "Manage a task's checklist"}
	check.AddCommand(&cobra.Command{
		Use:   "add <task> <text>",
		Short: "Append a checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				item, err := a.Engine.AddChecklistItem(cmd.Context(), engine.ChecklistAddOptions{TaskID: args[0], Text: args[1], ActorID: user})
				if err != nil {
					return err
				}
				return printJSON(item)
			})
		},
	})
	for _, done := range []bool{true, false} {
		use, short := "done <item>", "Tick a checklist item"
		if !done {
			use, short = "undo <item>", "Untick a checklist item"
		}
		completed := done
		check.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(a *app.App, user string) error {
					item, err := a.Engine.SetChecklistItem(cmd.Context(), engine.ChecklistSetOptions{ItemID: args[0], Completed: &completed, ActorID: user})
					if err != nil {
						return err
					}
					return printJSON(item)
				})
			},
		})
	}
	check.AddCommand(&cobra.Command{
		Use:   "rm <item>",
		Short: "Delete a checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				return a.Engine.DeleteChecklistItem(cmd.Context(), user, args[0])
			})
		},
	})
	return check
}

func taskConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "Run the conflict detector over the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				items, err := a.Engine.Conflicts(cmd.Context(), user, project)
				if err != nil {
					return err
				}
				return printConflicts(items)
			})
		},
	}
}

func taskEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <id>",
		Short: "Three-point estimate and Eisenhower quadrant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				est, err := a.Engine.EstimateTask(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(est)
				}
				tw := newTable("Task", "Optimistic", "Realistic", "Pessimistic", "Quadrant", "Complete")
				tw.AppendRow(row(est.TaskID, est.Estimate.Optimistic, est.Estimate.Realistic, est.Estimate.Pessimistic, est.Quadrant, est.Complete))
				tw.Render()
				return nil
			})
		},
	}
}

func timeCmd() *cobra.Command {
	tc := &cobra.Command{Use: "time", Short: "Log and review time entries"}
	var opts engine.TimeLogOptions
	logTime := &cobra.Command{
		Use:   "log <task> <hours>",
		Short: "Log hours against a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hours float64
			if _, err := fmt.Sscanf(args[1], "%g", &hours); err != nil {
				return fmt.Errorf("hours: %w", err)
			}
			return run(func(a *app.App, user string) error {
				opts.TaskID, opts.Hours, opts.ActorID = args[0], hours, user
				entry, err := a.Engine.LogTime(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printTimeEntries(entry)
			})
		},
	}
	logTime.Flags().StringVar(&opts.Date, "date", "", "date YYYY-MM-DD (default today)")
	logTime.Flags().BoolVar(&opts.Billable, "billable", false, "billable")
	logTime.Flags().Float64Var(&opts.HourlyRate, "rate", 0, "hourly rate")
	logTime.Flags().StringVar(&opts.Description, "description", "", "description")
	tc.AddCommand(logTime)

	var f domain.TimeEntryFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List time entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := currentProject()
			if err != nil {
				return err
			}
			return run(func(a *app.App, user string) error {
				f.ProjectID = project
				items, err := a.Engine.ListTimeEntries(cmd.Context(), user, f)
				if err != nil {
					return err
				}
				return printTimeEntries(items...)
			})
		},
	}
	list.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	list.Flags().StringVar(&f.UserID, "of", "", "user filter")
	tc.AddCommand(list)

	tc.AddCommand(&cobra.Command{
		Use:   "rm <entry>",
		Short: "Delete a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(a *app.App, user string) error {
				return a.Engine.DeleteTimeEntry(cmd.Context(), user, args[0])
			})
		},
	})
	return tc
}
