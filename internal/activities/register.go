package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.LoadJobActivity)
	w.RegisterActivity(a.CheckCancelledActivity)
	w.RegisterActivity(a.UpdateJobActivity)
	w.RegisterActivity(a.FailJobActivity)
	w.RegisterActivity(a.CompleteJobActivity)
	w.RegisterActivity(a.CancelJobActivity)
	w.RegisterActivity(a.ExtractFilesActivity)
	w.RegisterActivity(a.ChunkFilesActivity)
	w.RegisterActivity(a.GenerateQuestionsActivity)
	w.RegisterActivity(a.FinalizeQuestionsActivity)
	w.RegisterActivity(a.ExportQuestionsActivity)
	w.RegisterActivity(a.NotifyWebhookActivity)
}
