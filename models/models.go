package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - InterviewSession, SessionMessage from session.go
// - SessionAnalysis, QuestionFeedback, ThemeCount from analysis.go
// - UserStats from stats.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. interview_sessions - Records each practice attempt for a user
// 3. session_messages - Stores the ordered interviewer/candidate transcript
// 4. session_analyses - One AI-generated analysis per session, replaced on rerun
// 5. user_stats - One row per user tracking solved totals and streaks
