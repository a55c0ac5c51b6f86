package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cloaked/pkg/client"
)

func uploadCmd() *cobra.Command {
	var strength string
	var wait bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a photo and start protection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			if contentType == "" {
				return fmt.Errorf("cannot determine content type of %s", args[0])
			}

			c := apiClient()
			job, err := c.Upload(cmd.Context(), filepath.Base(args[0]), contentType, data, strength)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded: %s (%s)\n", job.ID, job.Status)

			if _, err := c.Convert(cmd.Context(), job.ID); err != nil {
				return err
			}
			if !wait {
				fmt.Println("protection started, check progress with: cloaked status", job.ID)
				return nil
			}
			return watch(cmd, c, job.ID)
		},
	}
	cmd.Flags().StringVar(&strength, "strength", "medium", "cloaking strength: light, medium or strong")
	cmd.Flags().BoolVar(&wait, "wait", true, "poll until the job finishes")
	return cmd
}

func statusCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show (or watch) a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			if wait {
				return watch(cmd, c, args[0])
			}
			job, err := c.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	return cmd
}

func watch(cmd *cobra.Command, c *client.Client, id string) error {
	job, err := c.PollJob(cmd.Context(), id, client.PollOptions{Interval: time.Second, MaxAttempts: 60})
	if errors.Is(err, client.ErrJobFailed) {
		printJob(job)
		return err
	}
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func printJob(job *client.Job) {
	fmt.Printf("%s  %s\n", job.ID, job.Status)
	fmt.Printf("  original:  %s\n", job.OriginalURL)
	if job.ProtectedURL != nil {
		fmt.Printf("  protected: %s\n", *job.ProtectedURL)
	}
}

func listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			cursor := ""
			for {
				jobs, next, err := c.Jobs(cmd.Context(), cursor, limit)
				if err != nil {
					return err
				}
				for i := range jobs {
					printJob(&jobs[i])
				}
				if next == "" {
					return nil
				}
				cursor = next
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	return cmd
}

func proofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <id>",
		Short: "Generate (or fetch) the deepfake-resistance proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, err := apiClient().Proof(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("verdict: %s (score %d, %s)\n", proof.Analysis.Verdict, proof.Analysis.ProtectionScore, proof.Analysis.Source)
			fmt.Println(" ", proof.Analysis.Summary)
			if proof.StorageFailed {
				fmt.Println("  proof images could not be stored; run again to retry")
				return nil
			}
			fmt.Printf("  original swap:  %s\n", proof.OriginalSwapURL)
			fmt.Printf("  protected swap: %s\n", proof.ProtectedSwapURL)
			if proof.Cached {
				fmt.Println("  (cached)")
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an image and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
