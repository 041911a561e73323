// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package models

import "time"

// Step is one instruction inside an SOP or template.
type Step struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SOP is a standard operating procedure.
type SOP struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Department string    `json:"department"`
	Status     string    `json:"status"`
	Steps      []Step    `json:"steps,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	Version    int64     `json:"version,omitempty"`
}

// Task is a job assigned to one or more users, optionally following an SOP.
type Task struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SOPID          string    `json:"sop_id,omitempty"`
	AssignedTo     []string  `json:"assigned_to"`
	Status         string    `json:"status"`
	ScheduledDate  string    `json:"scheduled_date"`
	CompletedSteps []string  `json:"completed_steps,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Version        int64     `json:"version,omitempty"`
}

// Template is a reusable SOP blueprint.
type Template struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Category   string `json:"category"`
	Steps      []Step `json:"steps,omitempty"`
	Version    int64  `json:"version,omitempty"`
}

// User is a member of the organisation.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name,omitempty"`
	Department string `json:"department"`
	Role       string `json:"role,omitempty"`
	Version    int64  `json:"version,omitempty"`
}
